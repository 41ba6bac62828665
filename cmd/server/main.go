package main

import (
	"context"
	"log"
	_ "time/tzdata"

	"github.com/storefeedback/qrverify/internal/server"
	"github.com/storefeedback/qrverify/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
