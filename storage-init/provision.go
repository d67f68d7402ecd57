package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

type provisioner interface {
	CreateTable(ctx context.Context, name string) error
	CreateQueue(ctx context.Context, name string) error
}

// provision creates every named table and queue. Existing resources are left
// untouched and empty names are skipped.
func provision(ctx context.Context, p provisioner, logger *log.Logger, tables, queues []string) error {
	for _, name := range tables {
		if name == "" {
			continue
		}
		if err := p.CreateTable(ctx, name); err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		logger.WithField("table", name).Info("table ready")
	}
	for _, name := range queues {
		if name == "" {
			continue
		}
		if err := p.CreateQueue(ctx, name); err != nil {
			return fmt.Errorf("queue %s: %w", name, err)
		}
		logger.WithField("queue", name).Info("queue ready")
	}
	return nil
}

type azureProvisioner struct {
	connStr string
	tables  *aztables.ServiceClient
}

func newAzureProvisioner(connStr string) (*azureProvisioner, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, err
	}
	return &azureProvisioner{connStr: connStr, tables: svc}, nil
}

func (a *azureProvisioner) CreateTable(ctx context.Context, name string) error {
	_, err := a.tables.NewClient(name).CreateTable(ctx, nil)
	if isAlreadyExists(err, string(aztables.TableAlreadyExists)) {
		return nil
	}
	return err
}

func (a *azureProvisioner) CreateQueue(ctx context.Context, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(a.connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if isAlreadyExists(err, "QueueAlreadyExists") {
		return nil
	}
	return err
}

func isAlreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
