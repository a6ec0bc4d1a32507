// nlctl-watch is a minimal reference implementation of a netlinkctl
// listener client: it subscribes to link, address, route, and
// neighbor notifications and prints each one as it arrives.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/netlinkctl/dispatch"
	"github.com/m-lab/netlinkctl/listener"
	"github.com/m-lab/netlinkctl/nlevent"
)

// allGroups subscribes to links, neighbors, and both address
// families' addresses and routes (RTMGRP_LINK|RTMGRP_NEIGH|
// RTMGRP_IPV4_IFADDR|RTMGRP_IPV6_IFADDR|RTMGRP_IPV4_ROUTE|
// RTMGRP_IPV6_ROUTE).
const allGroups = 0x1 | 0x4 | 0x10 | 0x100 | 0x40 | 0x400

var groups = flag.Uint("groups", allGroups, "Netlink multicast group bitmask to subscribe to.")

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "could not get args from environment variables")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	l := listener.New(*groups)
	l.Links.Connect(func(e nlevent.LinkEvent) {
		log.Println("link", e.Action, e.Name, e.Index, e.Flags)
	}, dispatch.Sync)
	l.Addresses.Connect(func(e nlevent.AddressEvent) {
		log.Println("address", e.Action, e.Address, "on", e.Index)
	}, dispatch.Sync)
	l.Routes.Connect(func(e nlevent.RouteEvent) {
		log.Println("route", e.Action, e.Dst, "via", e.Gateway)
	}, dispatch.Sync)
	l.Neighbors.Connect(func(e nlevent.NeighborEvent) {
		log.Println("neighbor", e.Action, e.Address, e.LLAddr, e.State)
	}, dispatch.Sync)
	l.Errors.Connect(func(e nlevent.ErrorEvent) {
		log.Println("error", e.Code, "for request type", e.Original.Type, "seq", e.Original.Sequence)
	}, dispatch.Sync)

	rtx.Must(l.Start(ctx), "could not start listener")
	log.Println("nlctl-watch listening, groups", *groups)

	<-ctx.Done()
	l.Stop()
}
