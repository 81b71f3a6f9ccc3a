package main

import "github.com/frahmantamala/payfast-itn/cmd"

func main() {
	cmd.Execute()
}
