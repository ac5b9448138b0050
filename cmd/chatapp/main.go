package main

import (
	"log"

	"github.com/suPer8Hu/chatapp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
