package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"skirmish/internal/identity"
)

func main() {
	dir := flag.String("dir", "keys", "directory to store identities under")
	name := flag.String("name", "", "identity name (required)")
	force := flag.Bool("force", false, "overwrite an existing identity")
	flag.Parse()

	if *name == "" {
		log.Fatalf("usage: keygen -name <identity> [-dir <keys dir>] [-force]")
	}

	privPath := filepath.Join(*dir, *name, identity.PrivateKeyFile)
	if !*force {
		if _, err := os.Stat(privPath); err == nil {
			log.Fatalf("identity already exists at %s (use -force to re-key)", privPath)
		}
	}

	id, err := identity.Generate(*name)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := id.Save(*dir); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("identity %s written under %s", identity.Fingerprint(id.Public), filepath.Join(*dir, *name))
}
