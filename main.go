// netlinkctl runs a route-channel listener and exposes its liveness
// and metrics while it does, entirely as a demonstration of package
// listener; real callers are expected to import package listener and
// package control directly rather than shell out to this binary.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	_ "net/http/pprof" // Support profiling

	"github.com/m-lab/netlinkctl/dispatch"
	"github.com/m-lab/netlinkctl/listener"
	"github.com/m-lab/netlinkctl/nlevent"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	promPort = flag.String("prom", ":9090", "Prometheus metrics export address and port. Default is ':9090'")
	groups   = flag.Uint("groups", defaultGroups, "Netlink multicast group bitmask to subscribe to.")
)

// defaultGroups subscribes to links, neighbors, and both address
// families' addresses and routes (RTMGRP_LINK|RTMGRP_NEIGH|
// RTMGRP_IPV4_IFADDR|RTMGRP_IPV6_IFADDR|RTMGRP_IPV4_ROUTE|
// RTMGRP_IPV6_ROUTE), per the listener's default group subscription.
const defaultGroups = 0x1 | 0x4 | 0x10 | 0x100 | 0x40 | 0x400

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	l := listener.New(*groups)
	l.Links.Connect(func(e nlevent.LinkEvent) {
		log.Printf("link %s: %s (index %d)", e.Action, e.Name, e.Index)
	}, dispatch.Sync)
	l.Neighbors.Connect(func(e nlevent.NeighborEvent) {
		log.Printf("neighbor %s: %s -> %s [%s]", e.Action, e.Address, e.LLAddr, e.State)
	}, dispatch.Sync)

	rtx.Must(l.Start(ctx), "could not start listener")
	log.Println("netlinkctl listening, groups", *groups)

	<-ctx.Done()
	l.Stop()
}
