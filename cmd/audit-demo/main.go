// Copyright 2025 Traceprompt
//
// audit-demo wires a Client to a toy LLM call and exercises the capture
// pipeline end to end: load config, wrap one call, then drain through
// Client.Shutdown and exit with the status code it returns.
package main

import (
	"context"
	"log"
	"os"

	"github.com/traceprompt/audit-go"
	"github.com/traceprompt/audit-go/internal/config"
	"github.com/traceprompt/audit-go/internal/record"
)

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("audit-demo: load config: %v", err)
	}

	client, err := audit.New(cfg)
	if err != nil {
		log.Fatalf("audit-demo: init audit client: %v", err)
	}

	complete := audit.WrapLLM(client, callModel, audit.CallMeta{
		ModelVendor: record.VendorOpenAI,
		ModelName:   "gpt-demo",
	})

	resp, err := complete(context.Background(), completionRequest{Prompt: "say hello"})
	if err != nil {
		log.Fatalf("audit-demo: model call failed: %v", err)
	}
	log.Printf("model responded: %s", resp.Text)

	code := client.Shutdown()
	os.Exit(code)
}

// callModel stands in for a real vendor SDK call.
func callModel(ctx context.Context, req completionRequest) (completionResponse, error) {
	return completionResponse{Text: "hello from " + req.Prompt}, nil
}
