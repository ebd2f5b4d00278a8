package main

import (
	audiopolicy "github.com/bmndc/nokia-leo-sub000"
)

func main() {
	audiopolicy.Main()
}
