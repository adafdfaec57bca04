//go:build ignore
// +build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Simple test program to verify the model gateway works end to end
// Run with: go run test_gateway_client.go config.go models.go gateway.go openai.go anthropic.go google.go openrouter.go council.go ranking.go
func main() {
	fmt.Println("=== Model Gateway Test ===")
	fmt.Println()

	LoadConfig()
	gateway := NewGateway()

	messages := []ChatMessage{
		{Role: "user", Content: "Say hello in exactly 5 words."},
	}

	ctx := context.Background()

	// Test 1: Single model through the gateway
	fmt.Println("Test 1: Querying single model (google/gemini-2.5-flash)...")
	start := time.Now()
	response, err := gateway.Generate(ctx, "google/gemini-2.5-flash", "", messages)
	elapsed := time.Since(start)

	if err != nil {
		log.Fatalf("❌ Single query failed: %v", err)
	}

	fmt.Printf("✅ Success! (%.2fs)\n", elapsed.Seconds())
	fmt.Printf("Response: %s\n\n", response)

	// Test 2: Parallel stage-1 collection across the default council
	fmt.Println("Test 2: Collecting stage-1 responses from the default council...")
	start = time.Now()
	stage1 := Stage1CollectResponses(ctx, gateway, DefaultMembers, "Say hello in exactly 5 words.", "")
	elapsed = time.Since(start)

	fmt.Printf("Completed in %.2fs\n", elapsed.Seconds())
	for _, r := range stage1 {
		if r.Failed {
			fmt.Printf("❌ %s (%s): %s\n", r.Member, r.Model, r.Error)
			continue
		}
		fmt.Printf("✅ %s (%s): %s\n", r.Member, r.Model, r.Response)
	}

	// Test 3: Failure classification with a bogus model id
	fmt.Println()
	fmt.Println("Test 3: Querying a nonexistent model (expected to fail)...")
	_, err = gateway.Generate(ctx, "openrouter/not-a-real-model", "", messages)
	if err != nil {
		fmt.Printf("✅ Got expected failure: %v\n", err)
	} else {
		fmt.Println("❌ Expected an error for a nonexistent model")
	}

	fmt.Println()
	fmt.Println("=== Done ===")
}
