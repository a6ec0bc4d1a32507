// nlctl-dump uses package control to dump one of links, addresses,
// routes, or neighbors, and writes the result as CSV using
// gocsv.Marshal.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/netlinkctl/control"
)

var kind = flag.String("kind", "links", "What to dump: links, addresses, routes, or neighbors.")

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func main() {
	flag.Parse()

	c := control.New()
	defer c.Close()

	var err error
	switch *kind {
	case "links":
		var links interface{}
		links, err = c.DumpLinks()
		if err == nil {
			err = gocsv.Marshal(links, os.Stdout)
		}
	case "addresses":
		var addrs interface{}
		addrs, err = c.DumpAddresses()
		if err == nil {
			err = gocsv.Marshal(addrs, os.Stdout)
		}
	case "routes":
		var routes interface{}
		routes, err = c.DumpRoutes()
		if err == nil {
			err = gocsv.Marshal(routes, os.Stdout)
		}
	case "neighbors":
		var neighbors interface{}
		neighbors, err = c.DumpNeighbors()
		if err == nil {
			err = gocsv.Marshal(neighbors, os.Stdout)
		}
	default:
		log.Fatalf("unknown -kind %q", *kind)
	}
	rtx.Must(err, "could not dump %s", *kind)
}
