// roomdropd is the room file drop server.
//
// Usage:
//
//	roomdropd [-config <file>] [options]
//
// Every option can also be given in a TOML configuration file. Command
// line options win over the file. With no storage directory, completed
// files are held in memory and are lost on restart, which is usually fine
// given how short the retention window is.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	raven "github.com/getsentry/raven-go"

	"github.com/roomdrop/roomdrop/blobcache"
	"github.com/roomdrop/roomdrop/room"
	"github.com/roomdrop/roomdrop/server"
	"github.com/roomdrop/roomdrop/store"
)

type config struct {
	Port        string
	StorageDir  string
	HandleTTL   string
	CORSOrigins []string
	SentryDSN   string
}

func main() {
	var (
		configFile = flag.String("config", "", "location of a configuration file")
		port       = flag.String("port", "", "port to listen on (default 3000)")
		storageDir = flag.String("storage", "", "directory to hold completed files (defaults to memory)")
		handleTTL  = flag.String("ttl", "", "how long download links stay live (default 60s)")
		showVer    = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVer {
		log.Printf("roomdropd version %s", server.Version)
		return
	}

	var c config
	if *configFile != "" {
		_, err := toml.DecodeFile(*configFile, &c)
		if err != nil {
			log.Fatalf("Error reading configuration file: %s", err.Error())
		}
	}
	if *port != "" {
		c.Port = *port
	}
	if *storageDir != "" {
		c.StorageDir = *storageDir
	}
	if *handleTTL != "" {
		c.HandleTTL = *handleTTL
	}

	if c.SentryDSN != "" {
		raven.SetDSN(c.SentryDSN)
		raven.SetRelease(server.Version)
	}

	ttl := 60 * time.Second
	if c.HandleTTL != "" {
		d, err := time.ParseDuration(c.HandleTTL)
		if err != nil {
			log.Fatalf("Error parsing ttl %s: %s", c.HandleTTL, err.Error())
		}
		ttl = d
	}

	var blobstore store.Store = store.NewMemory()
	if c.StorageDir != "" {
		log.Printf("Using storage dir %s", c.StorageDir)
		blobstore = store.NewFileSystem(c.StorageDir)
	}
	handles := blobcache.New(blobstore, ttl)

	srv := &server.RESTServer{
		PortNumber:  c.Port,
		Rooms:       room.NewRegistry(handles),
		Handles:     handles,
		CORSOrigins: c.CORSOrigins,
	}

	// shut down the listening socket on SIGINT or SIGTERM so in-flight
	// requests can finish
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		signal.Stop(sig)
		log.Println("Received signal", s)
		srv.Stop()
	}()

	err := srv.Run()
	if err != nil {
		log.Println(err)
	}
	handles.Stop()
	log.Println("Exiting")
}
