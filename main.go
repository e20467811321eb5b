// Command site-harvester harvests a site into enriched markdown documents.
package main

import (
	"os"

	"github.com/JakeFAU/site-harvester/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
