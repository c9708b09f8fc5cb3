// cardsentry: fraud-alert triage for a card-issuing support desk.
package main

import "github.com/cardsentry/cardsentry/internal/cli"

func main() {
	cli.Execute()
}
