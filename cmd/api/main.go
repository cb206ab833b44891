package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"rfqflow/auth"
	"rfqflow/db"
	"rfqflow/earlypay"
	"rfqflow/notification"
	"rfqflow/offer"
	"rfqflow/order"
	"rfqflow/payment"
	"rfqflow/rfq"
)

func main() {
	ctx := context.Background()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	dispatcher := notification.NewDispatcher(notification.NewRepository(pool), logger)

	rfqRepo := rfq.NewRepository(pool)
	orderRepo := order.NewRepository(pool)
	paymentEngine := payment.NewEngine(pool, payment.NewRepository(pool), dispatcher)

	server := &Server{
		authService:         auth.NewService(auth.NewRepository(pool), jwtSecret).WithNotifier(dispatcher),
		rfqService:          rfq.NewService(pool, rfqRepo, dispatcher),
		inviteService:       rfq.NewInviteService(pool, dispatcher),
		offerService:        offer.NewService(pool, offer.NewRepository(pool), rfqRepo, orderRepo, dispatcher),
		orderService:        order.NewService(pool, orderRepo, paymentEngine, dispatcher),
		paymentService:      paymentEngine,
		earlypayService:     earlypay.NewService(earlypay.NewRepository(pool), dispatcher),
		notificationService: notification.NewService(notification.NewRepository(pool)),
		webhookSecret:       os.Getenv("PAYMENT_WEBHOOK_SECRET"),
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("api listening on %s", addr)
	if err := http.ListenAndServe(addr, server.routes()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
