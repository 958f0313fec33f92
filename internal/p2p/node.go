package p2p

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
	"github.com/duythong28/connect-career-fe-sub001/internal/util"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

func init() {
	// Silence noisy libp2p subsystems; dial failures and backoff errors
	// go to stderr by default and pollute terminal output.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("autonat", "warn")
}

type mdnsNotifee struct {
	h host.Host
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultConnectTimeout)
	defer cancel()
	_ = n.h.Connect(ctx, pi)
}

// loadOrCreateKey loads a persistent identity key from disk,
// or generates a new Ed25519 key and saves it on first run.
func loadOrCreateKey(keyFile string) (crypto.PrivKey, bool, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err == nil {
			return priv, false, nil
		}
		log.Printf("WARNING: corrupt identity key at %s: %v (generating new key)", keyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, false, err
	}

	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity key: %w", err)
	}

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, false, fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := os.WriteFile(keyFile, raw, 0600); err != nil {
		return nil, false, fmt.Errorf("save identity key: %w", err)
	}

	return priv, true, nil
}

// Node is the libp2p-backed channel transport. Each chat channel maps to
// one GossipSub topic; peers on the same LAN find each other over mDNS.
type Node struct {
	Host host.Host
	ps   *pubsub.PubSub

	ctx         context.Context
	topicPrefix string
}

// New starts a libp2p host with GossipSub and mDNS discovery. The identity
// key is persisted so the peer ID survives restarts.
func New(ctx context.Context, listenPort int, keyFile, mdnsTag, topicPrefix string) (*Node, error) {
	priv, isNew, err := loadOrCreateKey(keyFile)
	if err != nil {
		return nil, err
	}
	if isNew {
		log.Printf("Generated new identity key: %s", keyFile)
	} else {
		log.Printf("Loaded identity key: %s", keyFile)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)),
	)
	if err != nil {
		return nil, err
	}

	md := mdns.NewMdnsService(h, mdnsTag, &mdnsNotifee{h: h})
	if err := md.Start(); err != nil {
		_ = h.Close()
		return nil, err
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	if topicPrefix == "" {
		topicPrefix = proto.ChannelTopicPrefix
	}

	return &Node{
		Host:        h,
		ps:          ps,
		ctx:         ctx,
		topicPrefix: topicPrefix,
	}, nil
}

// ID returns the local peer ID string.
func (n *Node) ID() string {
	return n.Host.ID().String()
}

// Addrs returns the host's full dialable multiaddrs.
func (n *Node) Addrs() []string {
	pid, err := ma.NewMultiaddr("/p2p/" + n.Host.ID().String())
	if err != nil {
		return nil
	}
	var out []string
	for _, a := range n.Host.Addrs() {
		out = append(out, a.Encapsulate(pid).String())
	}
	return out
}

// Close shuts down the host. Channel subscriptions die with it.
func (n *Node) Close() error {
	return n.Host.Close()
}
