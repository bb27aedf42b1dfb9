//go:build ignore

package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/muurk/lifxlan/internal/protocol"
)

// Decodes hex-encoded frames, one per line, from a file or stdin. Useful
// for frames copied out of debug logs (LIFXLAN_LOG_LEVEL=debug).
//
//	go run tools/decode-frames.go frames.txt
//	echo "24 00 00 34 ..." | go run tools/decode-frames.go
func main() {
	in := os.Stdin
	if len(os.Args) > 1 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			fmt.Printf("Error opening file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	reg := protocol.DefaultRegistry()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNum, decoded, failed := 0, 0, 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Accept "24 00 00 34", "24000034" and "0x24,0x00" styles.
		cleaned := strings.NewReplacer(" ", "", ",", "", "0x", "", ":", "").Replace(line)
		frame, err := hex.DecodeString(cleaned)
		if err != nil {
			fmt.Printf("%4d: invalid hex: %v\n", lineNum, err)
			failed++
			continue
		}

		code, err := protocol.PeekType(frame)
		if err != nil {
			fmt.Printf("%4d: %v\n", lineNum, err)
			failed++
			continue
		}
		if !reg.Known(code) {
			fmt.Printf("%4d: %s, %d bytes\n", lineNum, protocol.TypeName(code), len(frame))
			failed++
			continue
		}
		pkt, err := reg.Parse(frame)
		if err != nil {
			fmt.Printf("%4d: %s: %v\n", lineNum, protocol.TypeName(code), err)
			failed++
			continue
		}
		fmt.Printf("%4d: %s\n", lineNum, pkt)
		decoded++
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%d decoded, %d failed\n", decoded, failed)
}
