package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/RosanaConstantin/cna-introspect/order-service/domain"
)

type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
}

// TableStore persists orders in Azure Table Storage, one entity per order
// keyed by the order id.
type TableStore struct {
	table tableClient
}

// NewTableStore connects to the orders table.
func NewTableStore(connStr, ordersTable string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    30 * time.Second,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(ordersTable)}, nil
}

type orderEntity struct {
	PartitionKey  string  `json:"PartitionKey"`
	RowKey        string  `json:"RowKey"`
	ProductID     string  `json:"ProductId"`
	ProductName   string  `json:"ProductName"`
	Price         float64 `json:"Price"`
	Quantity      int     `json:"Quantity"`
	Total         float64 `json:"Total"`
	CreatedAt     string  `json:"CreatedAt"`
	CorrelationID string  `json:"CorrelationId"`
}

func toEntity(o domain.Order) orderEntity {
	return orderEntity{
		PartitionKey:  o.OrderID,
		RowKey:        o.OrderID,
		ProductID:     o.ProductID,
		ProductName:   o.ProductName,
		Price:         o.Price,
		Quantity:      o.Quantity,
		Total:         o.Total,
		CreatedAt:     o.Timestamp,
		CorrelationID: o.CorrelationID,
	}
}

func (e orderEntity) order() domain.Order {
	return domain.Order{
		OrderID:       e.RowKey,
		ProductID:     e.ProductID,
		ProductName:   e.ProductName,
		Price:         e.Price,
		Quantity:      e.Quantity,
		Total:         e.Total,
		Timestamp:     e.CreatedAt,
		CorrelationID: e.CorrelationID,
	}
}

// Save inserts o. An entity that already exists under the same id is treated
// as an earlier successful save.
func (s *TableStore) Save(ctx context.Context, o domain.Order) error {
	payload, err := sonic.Marshal(toEntity(o))
	if err != nil {
		return err
	}
	_, err = s.table.AddEntity(ctx, payload, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
			return nil
		}
		return err
	}
	return nil
}

func (s *TableStore) Get(ctx context.Context, orderID string) (domain.Order, error) {
	resp, err := s.table.GetEntity(ctx, orderID, orderID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	var ent orderEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Order{}, err
	}
	return ent.order(), nil
}
