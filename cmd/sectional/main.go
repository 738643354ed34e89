// Command sectional manages sections of checkable items.
package main

import "github.com/mesh-intelligence/sectional/internal/cli"

func main() {
	cli.Execute()
}
