// Copyright 2025 SurveyFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package azblob delivers export tables to an Azure Blob Storage
// container. Authentication supports connection strings, shared
// account keys, and managed identity via DefaultAzureCredential.
package azblob

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"surveyflow/platform/connectors/config"
	"surveyflow/platform/destinations"
)

// AzureBlobDestination writes export tables to a blob container
type AzureBlobDestination struct {
	name      string
	cfg       *config.DestinationConfig
	client    *azblob.Client
	container string
	prefix    string
	logger    *log.Logger
}

// NewAzureBlobDestination creates an Azure Blob destination instance
func NewAzureBlobDestination() *AzureBlobDestination {
	return &AzureBlobDestination{
		logger: log.New(os.Stdout, "[AZBLOB_DEST] ", log.LstdFlags),
	}
}

// Open builds the blob client from the configured auth method
func (d *AzureBlobDestination) Open(ctx context.Context, cfg *config.DestinationConfig) error {
	container, _ := cfg.Config["container"].(string)
	if container == "" {
		return fmt.Errorf("azblob destination %q requires a container", cfg.Name)
	}

	accountName, _ := cfg.Config["account_name"].(string)
	connectionString := cfg.Credentials["connection_string"]
	accountKey := cfg.Credentials["account_key"]
	useManagedIdentity, _ := cfg.Config["use_managed_identity"].(bool)

	var client *azblob.Client
	var err error

	switch {
	case connectionString != "":
		client, err = azblob.NewClientFromConnectionString(connectionString, nil)
		if err != nil {
			return fmt.Errorf("failed to create client from connection string: %w", err)
		}
	case accountKey != "":
		if accountName == "" {
			return fmt.Errorf("azblob destination %q requires an account_name with account_key auth", cfg.Name)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
		cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
	case useManagedIdentity:
		if accountName == "" {
			return fmt.Errorf("azblob destination %q requires an account_name with managed identity auth", cfg.Name)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
	default:
		return fmt.Errorf("azblob destination %q has no authentication method", cfg.Name)
	}

	// Verify connectivity before exposing the destination.
	if _, err := client.ServiceClient().GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("failed to verify Azure Blob connectivity: %w", err)
	}

	d.name = cfg.Name
	d.cfg = cfg
	d.client = client
	d.container = container
	d.prefix, _ = cfg.Config["prefix"].(string)

	d.logger.Printf("Opened Azure Blob destination (account: %s, container: %s)", accountName, container)
	return nil
}

// Write encodes the table and uploads it as one block blob
func (d *AzureBlobDestination) Write(ctx context.Context, req *destinations.WriteRequest) (*destinations.WriteResult, error) {
	if d.client == nil {
		return nil, fmt.Errorf("destination not opened")
	}

	start := time.Now()

	format, err := destinations.ResolveFormat(req, d.cfg)
	if err != nil {
		return nil, err
	}

	data, err := destinations.Encode(req.Table, format)
	if err != nil {
		return nil, err
	}

	key := destinations.ObjectKey(d.prefix, req.SurveyID, req.RunID, format)
	contentType := destinations.ContentType(format)

	_, err = d.client.UploadBuffer(ctx, d.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
		Metadata: map[string]*string{
			"survey_id": &req.SurveyID,
			"run_id":    &req.RunID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	d.logger.Printf("Uploaded %d bytes to %s/%s", len(data), d.container, key)

	return &destinations.WriteResult{
		Location: fmt.Sprintf("%s/%s", d.container, key),
		Bytes:    len(data),
		Format:   format,
		Duration: time.Since(start),
	}, nil
}

// Close releases the client
func (d *AzureBlobDestination) Close(ctx context.Context) error {
	d.client = nil
	return nil
}

// Name returns the destination instance name
func (d *AzureBlobDestination) Name() string { return d.name }

// Type returns the backend type
func (d *AzureBlobDestination) Type() string { return "azblob" }

var _ destinations.Destination = (*AzureBlobDestination)(nil)
