package main

import "github.com/frahmantamala/stay-booking/cmd"

func main() {
	cmd.Execute()
}
