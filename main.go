package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/app"
)

func main() {
	cfgPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err = app.Run(context.Background(), cfg); err != nil {
		log.Fatalf("failed to run app: %v", err)
	}
}
