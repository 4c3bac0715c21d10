package main

import "github.com/andresmejia3/tiler/cmd"

func main() {
	cmd.Execute()
}
