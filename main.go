package main

import "github.com/frahmantamala/leave-portal/cmd"

func main() {
	cmd.Execute()
}
