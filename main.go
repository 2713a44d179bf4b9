package main

import "github.com/edermartinez/bienesraices/cmd"

func main() {
	cmd.Execute()
}
