package main

import "github.com/edgeflare/dataprovider/cmd/pgrst"

func main() {
	pgrst.Main()
}
