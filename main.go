package main

import "github.com/nextlevelbuilder/messenger/cmd"

func main() {
	cmd.Execute()
}
