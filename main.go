package main

import "github.com/KaramelBytes/tabletalk/cmd"

func main() {
	cmd.Execute()
}
