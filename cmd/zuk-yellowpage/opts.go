package main

import "strings"

var opts struct {
	NodeID     string `long:"node-id" env:"ZUK_NODE_ID" required:"true" description:"unique node id"`
	GossipPort int    `long:"gossip-port" env:"ZUK_GOSSIP_PORT" default:"7000" description:"udp port to bind for gossip"`
	BindHost   string `long:"bind-host" default:"0.0.0.0" description:"host to bind for gossip"`
	Advertise  string `long:"advertise-addr" env:"ZUK_ADVERTISE_ADDR" description:"ip:port advertised to other nodes"`
	Seeds      string `long:"seeds" env:"ZUK_SEEDS" description:"comma-separated list of seed nodes (host:port)"`
	ClusterID  string `long:"cluster-id" env:"ZUK_CLUSTER_ID" default:"zuklink-cluster" description:"cluster identifier"`
	Role       string `long:"role" default:"receiver" description:"value published under the role metadata key"`
	DataDir    string `long:"data-dir" env:"ZUK_DATA_DIR" description:"directory for the persistent generation counter"`
	Verbose    bool   `long:"verbose" short:"v" description:"enable debug logging"`
}

func parseSeeds(s string) []string {
	var seeds []string

	for _, seed := range strings.Split(s, ",") {
		if seed = strings.TrimSpace(seed); seed != "" {
			seeds = append(seeds, seed)
		}
	}

	return seeds
}
