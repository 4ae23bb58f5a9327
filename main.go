package main

import "github.com/jvanheule/webhook-poller/cmd"

func main() {
	cmd.Execute()
}
