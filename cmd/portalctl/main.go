package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/The-Sir-Community/ts-bf6-portal/internal/auth"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/client"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/experience"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/logging"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/lookup"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/playelement"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/schema"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  portalctl fetch -descriptors <file> -id <play-element-id> [-include-denied]
  portalctl apply -descriptors <file> -id <play-element-id> -config <experience.toml> [-script <file>] [-strings <file>]

credentials come from %s and %s
`, auth.EnvSessionID, auth.EnvTenancy)
	os.Exit(2)
}

func main() {
	logging.ConfigureRuntime()
	log := logging.Base("portalctl")

	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "fetch":
		err = runFetch(os.Args[2:])
	case "apply":
		err = runApply(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func newClient(descriptorPath string) (*client.Client, error) {
	source := func(context.Context) ([]byte, error) {
		return os.ReadFile(descriptorPath)
	}
	return client.New(client.Config{
		Credentials: auth.FromEnv(),
		Catalogs:    schema.NewLoader(source),
		Logger:      logging.Base("client"),
	})
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	descriptors := fs.String("descriptors", "", "path to the descriptor set file")
	id := fs.String("id", "", "play element id")
	includeDenied := fs.Bool("include-denied", false, "include moderation-denied content")
	_ = fs.Parse(args)
	if *descriptors == "" || *id == "" {
		usage()
	}

	c, err := newClient(*descriptors)
	if err != nil {
		return err
	}
	doc, err := c.FetchPlayElement(context.Background(), *id, *includeDenied)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(playelement.ToWire(doc.Element, doc.Design), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	descriptors := fs.String("descriptors", "", "path to the descriptor set file")
	id := fs.String("id", "", "play element id")
	configPath := fs.String("config", "", "experience config (toml)")
	scriptPath := fs.String("script", "", "script source to install")
	stringsPath := fs.String("strings", "", "localization strings to install")
	_ = fs.Parse(args)
	if *descriptors == "" || *id == "" || *configPath == "" {
		usage()
	}

	raw, err := os.ReadFile(*configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := experience.Parse(raw)
	if err != nil {
		return err
	}

	c, err := newClient(*descriptors)
	if err != nil {
		return err
	}
	ctx := context.Background()
	doc, err := c.FetchPlayElement(ctx, *id, false)
	if err != nil {
		return fmt.Errorf("fetch current state: %w", err)
	}

	m := playelement.NewModifier(doc)
	if err := experience.Translate(cfg, m, lookup.DefaultRestrictions(), logging.Base("experience")); err != nil {
		return err
	}
	if *scriptPath != "" {
		code, err := os.ReadFile(*scriptPath)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		m.SetScriptPayload(string(code))
	}
	if *stringsPath != "" {
		data, err := os.ReadFile(*stringsPath)
		if err != nil {
			return fmt.Errorf("read strings: %w", err)
		}
		m.SetLocalizationStrings(data, "")
	}

	updated, err := c.UpdatePlayElementFromModifier(ctx, *id, m)
	if err != nil {
		return err
	}
	log := logging.Base("portalctl")
	event := log.Info().Str("id", *id)
	if updated != nil && updated.Element != nil {
		event = event.Str("name", updated.Element.Name)
	}
	event.Msg("play element updated")
	return nil
}
