package main

import (
	cfg "memcap/src/configuration"
	server "memcap/src/server"
)

func main() {
	config := cfg.ReadProperties()
	server.RunServer(config)
}
