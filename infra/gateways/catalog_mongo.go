package gateways

import (
	"context"
	"errors"
	"fmt"

	"github.com/giovaniif/e-commerce/inventory/infra"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const productsCollection = "products"

type catalogProduct struct {
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
}

// CatalogGatewayMongo reads display names from the catalog's products collection.
type CatalogGatewayMongo struct {
	collection *mongo.Collection
}

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, infra.WrapNetwork("mongo ping", err)
	}
	return client, nil
}

func NewCatalogGatewayMongo(db *mongo.Database) *CatalogGatewayMongo {
	return &CatalogGatewayMongo{collection: db.Collection(productsCollection)}
}

func (g *CatalogGatewayMongo) ResolveDisplayName(ctx context.Context, productId string) (string, error) {
	var product catalogProduct
	err := g.collection.FindOne(ctx,
		bson.D{{Key: "product_id", Value: productId}},
		options.FindOne().SetProjection(bson.D{{Key: "product_id", Value: 1}, {Key: "name", Value: 1}}),
	).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("%w: %s", ErrProductNotInCatalog, productId)
	}
	if err != nil {
		return "", infra.WrapNetwork("mongo find product", err)
	}
	return product.Name, nil
}
