package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// topics and their subscription
var topics = map[string]string{
	// HarvestRequests consumed by the harvester
	"wcs-harvest-requests": "wcs-harvest-requests",
	// HarvestEvents published by the harvester
	"wcs-harvest-events": "wcs-harvest-events",
}

func main() {
	ctx := context.Background()

	emulatorHost := flag.String("host", "localhost:8085", "emulator host")
	projectID := flag.String("project", "geonode-emulator", "emulator project")
	ackDeadline := flag.Duration("ack-deadline", 60*time.Second, "ack deadline of the subscriptions (a harvest may be long)")
	flag.Parse()

	os.Setenv("PUBSUB_EMULATOR_HOST", *emulatorHost)

	log.Print("New client for project " + *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("pubsub.NewClient: %v", err)
	}
	defer client.Close()

	for topic, subscription := range topics {
		log.Print("Create Topic : " + topic)
		if _, err = client.CreateTopic(ctx, topic); err != nil && status.Code(err) != codes.AlreadyExists {
			log.Fatalf("pubsub.CreateTopic: %v", err)
		}

		log.Print("Create Subscription : " + subscription)
		if _, err = client.CreateSubscription(ctx, subscription, pubsub.SubscriptionConfig{
			Topic:       client.Topic(topic),
			AckDeadline: *ackDeadline,
		}); err != nil && status.Code(err) != codes.AlreadyExists {
			log.Fatalf("CreateSubscription: %v", err)
		}
	}

	log.Print("Done!")
}
