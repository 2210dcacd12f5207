package main

import "github.com/BrotherHong/rag-web-backend/cmd"

func main() {
	cmd.Execute()
}
