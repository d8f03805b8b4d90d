package main

import "sharhbot/cmd"

func main() {
	cmd.Execute()
}
