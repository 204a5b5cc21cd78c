package main

import "github.com/KeLes-Coding/novel-agent/cmd"

func main() {
	cmd.Execute()
}
