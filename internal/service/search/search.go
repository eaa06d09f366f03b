package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aquaflow/shop/internal/models"
	"github.com/elastic/go-elasticsearch/v8"
)

func Search(ctx context.Context, es *elasticsearch.Client, index, query string, from, size int) (int64, []models.Product, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^2", "description"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("search: encode query: %w", err)
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 }                              `json:"total"`
			Hits  []struct {
				Source models.Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	prods := make([]models.Product, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		prods[i] = hit.Source
	}
	return r.Hits.Total.Value, prods, nil
}

// IndexProduct upserts one catalog entry so admin CRUD keeps the search index
// in sync with the database.
func IndexProduct(ctx context.Context, es *elasticsearch.Client, index string, p models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("search: encode product: %w", err)
	}
	res, err := es.Index(
		index,
		bytes.NewReader(data),
		es.Index.WithContext(ctx),
		es.Index.WithDocumentID(p.ID),
	)
	if err != nil {
		return fmt.Errorf("search: index failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search: index: %s", res.Status())
	}
	return nil
}

// DeleteProduct removes a catalog entry from the index.
func DeleteProduct(ctx context.Context, es *elasticsearch.Client, index, id string) error {
	res, err := es.Delete(
		index,
		id,
		es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: delete failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("search: delete: %s", res.Status())
	}
	return nil
}
