package main

import "kfnunlocker/cmd"

func main() {
	cmd.Run()
}
