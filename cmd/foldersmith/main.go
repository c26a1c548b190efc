// Command foldersmith clones folder templates in Google Drive, Quip and local
// directories, from the command line or as a Slack bot.
package main

import "github.com/foldersmith/foldersmith/internal/cli"

func main() {
	cli.Execute()
}
