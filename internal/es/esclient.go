package es

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aquaflow/shop/internal/config"
	"github.com/elastic/go-elasticsearch/v8"
)

func NewClient(cfg *config.Config, log *slog.Logger) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.ES_URL},
		Username:  cfg.ES_USER,
		Password:  cfg.ES_PASSWORD,
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, err
	}

	res, err := client.Info()
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Error("elasticsearch error response", "body", string(body))
		return nil, fmt.Errorf("elasticsearch error: %s", res.Status())
	}

	log.Info("connected to elasticsearch", "url", cfg.ES_URL)
	return client, nil
}
