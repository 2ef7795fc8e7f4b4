package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-core/internal/client"
	"commerce-core/internal/config"
	"commerce-core/internal/repository"
	"commerce-core/internal/server"
	"commerce-core/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	db, err := client.InitDBClient(&cfg.Database)
	if err != nil {
		log.Fatal("Database connection error: ", err)
	}

	var gateway client.PaymentGateway
	switch cfg.Gateway.Provider {
	case "braintree":
		gateway = client.NewBraintreeGateway(&cfg.Braintree)
	default:
		gateway = client.NewHTTPGateway(&cfg.Gateway)
	}
	notifier := client.NewNotifier(&cfg.Notifier)

	cartRepo := repository.NewCartRepository(db)
	productRepo := repository.NewProductRepository(db)
	stockRepo := repository.NewStockRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	failedOpRepo := repository.NewFailedOperationRepository(db)

	pricing, err := service.NewPricingCalculator(&cfg.Pricing)
	if err != nil {
		log.Fatal("Pricing config error: ", err)
	}

	handlers := []service.SideEffectHandler{
		service.NewStockDeductionHandler(db, orderRepo, stockRepo),
		service.NewCouponUsageHandler(db, orderRepo, couponRepo),
		service.NewNotificationHandler(notifier),
		service.NewWebhookDeliveryHandler(notifier),
	}

	fulfillment := service.NewFulfillmentCoordinator(failedOpRepo, handlers...)
	cartService := service.NewCartService(db, cartRepo, productRepo, stockRepo, couponRepo, pricing, &cfg.Checkout)
	checkoutService := service.NewCheckoutService(db, cartRepo, orderRepo, stockRepo, counterRepo, paymentRepo, gateway, pricing, &cfg.Checkout)
	reconcileService := service.NewReconcileService(db, orderRepo, paymentRepo, webhookEventRepo, fulfillment)

	scheduler := service.NewRetryScheduler(failedOpRepo, &cfg.Retry, handlers...)
	reaper := service.NewCartExpiryReaper(db, cartRepo, stockRepo, &cfg.Reaper)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go scheduler.Run(bgCtx)
	go reaper.Run(bgCtx)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	// Init HTTP server
	srv := server.NewServer(cartService, checkoutService, reconcileService, gateway)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	bgCancel()

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
