package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const pageSize = 100

// ListSyncProducts walks every page of the store's products.
func (c *Client) ListSyncProducts(ctx context.Context) ([]SyncProduct, error) {
	var all []SyncProduct
	offset := 0
	for {
		var page []SyncProduct
		endpoint := fmt.Sprintf("/store/products?offset=%d&limit=%d", offset, pageSize)
		paging, err := c.request(ctx, http.MethodGet, endpoint, nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		offset += len(page)
		if len(page) == 0 || paging == nil || offset >= paging.Total {
			return all, nil
		}
	}
}

func (c *Client) GetSyncProduct(ctx context.Context, id int64) (*SyncProductDetail, error) {
	var out SyncProductDetail
	if err := c.Request(ctx, http.MethodGet, "/store/products/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateSyncProduct(ctx context.Context, req SyncProductRequest) (*SyncProduct, error) {
	var out SyncProduct
	if err := c.Request(ctx, http.MethodPost, "/store/products", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSyncProduct(ctx context.Context, id int64, req SyncProductRequest) (*SyncProduct, error) {
	var out SyncProduct
	if err := c.Request(ctx, http.MethodPut, "/store/products/"+strconv.FormatInt(id, 10), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSyncProduct(ctx context.Context, id int64) error {
	return c.Request(ctx, http.MethodDelete, "/store/products/"+strconv.FormatInt(id, 10), nil, nil)
}

// ListCatalogProducts lists base products, optionally filtered by category.
func (c *Client) ListCatalogProducts(ctx context.Context, categoryID int64) ([]CatalogProduct, error) {
	endpoint := "/products"
	if categoryID > 0 {
		endpoint += "?category_id=" + strconv.FormatInt(categoryID, 10)
	}
	var out []CatalogProduct
	if err := c.Request(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListCatalogCategories(ctx context.Context) ([]CatalogCategory, error) {
	var out struct {
		Categories []CatalogCategory `json:"categories"`
	}
	if err := c.Request(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (c *Client) GetCatalogVariant(ctx context.Context, id int64) (*CatalogVariantDetail, error) {
	var out CatalogVariantDetail
	if err := c.Request(ctx, http.MethodGet, "/products/variant/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMockupTask submits a generation job. A job the provider accepted but
// immediately marked failed is returned as a RemoteError carrying its message,
// so throttle hints inside it can be recognised by ParseThrottleHint.
func (c *Client) CreateMockupTask(ctx context.Context, productID int64, req MockupTaskRequest) (*MockupTaskResult, error) {
	endpoint := "/mockup-generator/create-task/" + strconv.FormatInt(productID, 10)
	var out MockupTaskResult
	if err := c.Request(ctx, http.MethodPost, endpoint, req, &out); err != nil {
		return nil, err
	}
	if out.Status == MockupStatusFailed {
		return nil, c.fail(ctx, http.MethodPost, endpoint, &RemoteError{
			Code:       http.StatusUnprocessableEntity,
			Reason:     ReasonJobFailed,
			Message:    out.Error,
			Endpoint:   endpoint,
			HTTPStatus: http.StatusOK,
		})
	}
	return &out, nil
}

func (c *Client) GetMockupTask(ctx context.Context, taskKey string) (*MockupTaskResult, error) {
	var out MockupTaskResult
	endpoint := "/mockup-generator/task?task_key=" + url.QueryEscape(taskKey)
	if err := c.Request(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder submits an order. Draft orders are created unless confirm is set.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, confirm bool) (*RemoteOrder, error) {
	endpoint := "/orders"
	if confirm {
		endpoint += "?confirm=true"
	}
	var out RemoteOrder
	if err := c.Request(ctx, http.MethodPost, endpoint, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder accepts a provider id or "@"-prefixed external id.
func (c *Client) GetOrder(ctx context.Context, id string) (*RemoteOrder, error) {
	var out RemoteOrder
	if err := c.Request(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrderByExternalID looks an order up by the id we assigned at submission.
func (c *Client) GetOrderByExternalID(ctx context.Context, externalID string) (*RemoteOrder, error) {
	return c.GetOrder(ctx, "@"+externalID)
}
