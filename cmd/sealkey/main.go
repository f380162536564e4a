// Command sealkey prints a fresh base64-encoded 256-bit stream key.
package main

import (
	"fmt"
	"os"

	"pkt.systems/sealstream"
)

func main() {
	key, err := sealstream.GenerateKeyString()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key)
}
