package storefront

import (
	"context"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
)

// ProductIDKey is the span attribute carrying the product being accessed.
const ProductIDKey = attribute.Key("product.id")

// Product is a catalog entry. Fields are passed through uninterpreted.
type Product struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity,omitempty"`
}

// ProductService wraps the product endpoints.
type ProductService struct {
	client *Client
}

// List fetches every product.
func (s *ProductService) List(ctx context.Context) ([]Product, error) {
	var products []Product
	err := s.client.call(ctx, "getAllProducts", nil, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&products).Get("/api/products")
	})
	return products, err
}

// Get fetches one product.
func (s *ProductService) Get(ctx context.Context, id string) (*Product, error) {
	var product Product
	attrs := []attribute.KeyValue{ProductIDKey.String(id)}
	err := s.client.call(ctx, "getProductById", attrs, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("id", id).SetResult(&product).Get("/api/products/{id}")
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Create adds a product and returns the stored version.
func (s *ProductService) Create(ctx context.Context, p Product) (*Product, error) {
	var created Product
	err := s.client.call(ctx, "createProduct", nil, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(p).SetResult(&created).Post("/api/products/add")
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update replaces a product and returns the stored version.
func (s *ProductService) Update(ctx context.Context, p Product) (*Product, error) {
	var updated Product
	attrs := []attribute.KeyValue{ProductIDKey.String(p.ID)}
	err := s.client.call(ctx, "updateProduct", attrs, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("id", p.ID).SetBody(p).SetResult(&updated).Put("/api/products/update/{id}")
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a product.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{ProductIDKey.String(id)}
	return s.client.call(ctx, "deleteProduct", attrs, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("id", id).Delete("/api/products/delete/{id}")
	})
}
