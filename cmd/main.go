package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/attunefm/attune/app"
	"github.com/attunefm/attune/client"
	"github.com/attunefm/attune/config"
	"github.com/attunefm/attune/controller"
	"github.com/attunefm/attune/directory"
	"github.com/attunefm/attune/engine"
	"github.com/attunefm/attune/history"
	"github.com/attunefm/attune/invite"
	"github.com/attunefm/attune/playback"
	"github.com/attunefm/attune/room"
	"github.com/attunefm/attune/session"
	"github.com/attunefm/attune/transfer"
	"github.com/attunefm/attune/version"
	"gopkg.in/yaml.v3"
)

func main() {
	v := version.Get()
	bytes, err := yaml.Marshal(v)
	if err != nil {
		log.Panicf("marshal version data: %s", err)
	}
	log.Println("version:\n" + string(bytes))

	var (
		runHome         = false
		joinToken       = ""
		password        = ""
		roomName        = "listening room"
		addr            = config.GetBindAddr()
		shouldRunEngine = true
	)

	for _, arg := range os.Args {
		if arg == "--home" {
			runHome = true
			continue
		}
		if arg == "--no-engine" {
			shouldRunEngine = false
			continue
		}

		if token, ok := strings.CutPrefix(arg, "--join="); ok {
			joinToken = token
		}
		if pw, ok := strings.CutPrefix(arg, "--password="); ok {
			password = pw
		}
		if name, ok := strings.CutPrefix(arg, "--name="); ok {
			roomName = name
		}
		if specifiedAddr, ok := strings.CutPrefix(arg, "--addr="); ok {
			addr = specifiedAddr
		}
	}

	if addr == "" {
		addr, err = bindAddrFromPortRange()
		if err != nil {
			log.Fatalf("find bind address: %s", err)
		}
	}

	if err := os.MkdirAll(config.GetCacheDir(), 0o755); err != nil {
		log.Fatalf("create cache dir: %s", err)
	}

	ctrl := &controller.Controller{CacheDir: config.GetCacheDir()}

	teardown := func() {}
	switch {
	case runHome:
		setupHome(ctrl)
	case joinToken != "":
		teardown = setupClient(ctrl, joinToken, password)
	default:
		teardown = setupHost(ctrl, roomName, password, addr)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-interrupts
		log.Printf("received %s, shutting down", sig)
		teardown()
		os.Exit(0)
	}()

	a := app.App{}
	a.Initialize(ctrl)

	if shouldRunEngine {
		go engine.Run()
	}

	a.Run(addr)
}

func setupHome(ctrl *controller.Controller) {
	registry := directory.NewRegistry()
	engine.RegisterPruner(registry)
	ctrl.Registry = registry
	log.Println("running as home directory server")
}

func setupHost(ctrl *controller.Controller, roomName string, password string, addr string) func() {
	hostedRoom, err := room.New(room.Params{Name: roomName, Password: password})
	if err != nil {
		log.Fatalf("create room: %s", err)
	}

	player := playback.NewVirtualPlayer()
	ring := history.NewRing()

	advertiseAddr := config.GetAdvertiseAddr()
	if advertiseAddr == "" {
		advertiseAddr = addr
	}

	host := session.NewHost(session.HostParams{
		Room:          hostedRoom,
		Player:        player,
		Recorder:      ring,
		Source:        transfer.DirSource{Root: config.GetLibraryDir()},
		CacheDir:      config.GetCacheDir(),
		AdvertiseAddr: advertiseAddr,
	})
	go host.Run()

	engine.RegisterSession(host)
	engine.RegisterTicker(player)
	ctrl.Host = host
	ctrl.History = ring

	var announcer *directory.Announcer
	if homeAddr := config.GetHomeAddr(); homeAddr != "" {
		announcer = directory.NewAnnouncer(homeAddr, func() directory.Announcement {
			return directory.Announcement{
				Code:        hostedRoom.Code,
				Name:        hostedRoom.Name,
				Address:     advertiseAddr,
				PeerCount:   host.LinkCount(),
				MaxPeers:    hostedRoom.MaxPeers,
				HasPassword: hostedRoom.HasPassword(),
			}
		})
		engine.RegisterAnnouncer(announcer.Announce)
	}

	log.Printf("hosting room %q (code %s)", hostedRoom.Name, hostedRoom.Code)
	if password != "" {
		token, err := invite.Encode(advertiseAddr, invite.Params{
			SessionID: hostedRoom.Code,
			MaxPeers:  hostedRoom.MaxPeers,
		}, password)
		if err != nil {
			log.Fatalf("encode invite: %s", err)
		}
		log.Printf("invite token: %s", token)
	} else {
		log.Println("no password set; mint invites via POST /room/invite after setting one")
	}

	return func() {
		if announcer != nil {
			announcer.Delist(hostedRoom.Code)
		}
		host.Shutdown()
	}
}

func setupClient(ctrl *controller.Controller, token string, password string) func() {
	player := playback.NewVirtualPlayer()
	ring := history.NewRing()

	c, err := client.Join(client.JoinParams{
		InviteToken: token,
		Password:    password,
		Nickname:    config.GetNickname(),
		Player:      player,
		Recorder:    ring,
		Source:      transfer.DirSource{Root: config.GetLibraryDir()},
		CacheDir:    config.GetCacheDir(),
	})
	if err != nil {
		log.Fatalf("join room: %s", err)
	}

	engine.RegisterSession(c)
	engine.RegisterTicker(player)
	ctrl.History = ring

	log.Printf("joined as %s (peer %s)", config.GetNickname(), c.PeerID())
	return c.Leave
}

// bindAddrFromPortRange probes the configured range for a free port so
// several instances can share a machine.
func bindAddrFromPortRange() (string, error) {
	lo, hi := config.GetPortRange()
	for port := lo; port <= hi; port++ {
		candidate := fmt.Sprintf("0.0.0.0:%d", port)
		listener, err := net.Listen("tcp", candidate)
		if err != nil {
			continue
		}
		listener.Close()
		return candidate, nil
	}
	return "", fmt.Errorf("no free port in %d-%d", lo, hi)
}
