package main

import "eval360/internal/app/server"

func main() {
	server.Run()
}
