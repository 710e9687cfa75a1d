package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"vectorizer/internal/domain"
)

const (
	pkPrefixEntitlement = "ENT#"
	pkPrefixSession     = "SESSION#"
	skMeta              = "META#"
	ttlGrace            = 7 * 24 * time.Hour // keep expired rows around briefly for support lookups
)

// ErrConflict is returned when a conditional write loses against an existing
// record.
var ErrConflict = errors.New("repository: conditional write conflict")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores entitlements in a single DynamoDB table. Each entitlement
// is written twice: once under its token and once under the checkout
// session it was redeemed from.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func entitlementPK(token string) string {
	return pkPrefixEntitlement + token
}

func sessionPK(sessionID string) string {
	return pkPrefixSession + sessionID
}

func ttlValue(expiresAt time.Time) int64 {
	return expiresAt.Add(ttlGrace).Unix()
}

// SaveEntitlement writes the token and session records in one transaction.
// It returns ErrConflict when either record already exists.
func (c *Client) SaveEntitlement(ctx context.Context, e domain.Entitlement) error {
	if e.Token == "" || e.SessionID == "" {
		return errors.New("repository: SaveEntitlement: token and session id are required")
	}

	cond := aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)")
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                entitlementItem(e),
					ConditionExpression: cond,
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                sessionItem(e),
					ConditionExpression: cond,
				},
			},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && conditionFailed(canceled) {
			return fmt.Errorf("repository: SaveEntitlement: %w", ErrConflict)
		}
		return fmt.Errorf("repository: SaveEntitlement: %w", err)
	}
	return nil
}

// GetByToken returns the entitlement for token. ok is false when no record
// exists.
func (c *Client) GetByToken(ctx context.Context, token string) (e domain.Entitlement, ok bool, err error) {
	item, err := c.getMeta(ctx, entitlementPK(token))
	if err != nil {
		return domain.Entitlement{}, false, fmt.Errorf("repository: GetByToken: %w", err)
	}
	if item == nil {
		return domain.Entitlement{}, false, nil
	}
	e, err = itemToEntitlement(item)
	if err != nil {
		return domain.Entitlement{}, false, fmt.Errorf("repository: GetByToken decode: %w", err)
	}
	return e, true, nil
}

// GetBySession returns the entitlement previously redeemed from a checkout
// session.
func (c *Client) GetBySession(ctx context.Context, sessionID string) (domain.Entitlement, bool, error) {
	item, err := c.getMeta(ctx, sessionPK(sessionID))
	if err != nil {
		return domain.Entitlement{}, false, fmt.Errorf("repository: GetBySession: %w", err)
	}
	if item == nil {
		return domain.Entitlement{}, false, nil
	}
	token, err := strAttr(item, "token")
	if err != nil {
		return domain.Entitlement{}, false, fmt.Errorf("repository: GetBySession decode: %w", err)
	}
	return c.GetByToken(ctx, token)
}

// BindObjectKey pins an unbound entitlement to key. Binding the same key
// again is a no-op; binding a different key returns ErrConflict.
func (c *Client) BindObjectKey(ctx context.Context, token, key string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entitlementPK(token)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:    aws.String("SET objectKey = :key"),
		ConditionExpression: aws.String("attribute_exists(PK) AND (attribute_not_exists(objectKey) OR objectKey = :empty OR objectKey = :key)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key":   &types.AttributeValueMemberS{Value: key},
			":empty": &types.AttributeValueMemberS{Value: ""},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("repository: BindObjectKey: %w", ErrConflict)
		}
		return fmt.Errorf("repository: BindObjectKey: %w", err)
	}
	return nil
}

func (c *Client) getMeta(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func conditionFailed(e *types.TransactionCanceledException) bool {
	for _, r := range e.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func entitlementItem(e domain.Entitlement) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: entitlementPK(e.Token)},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"token":     &types.AttributeValueMemberS{Value: e.Token},
		"sessionId": &types.AttributeValueMemberS{Value: e.SessionID},
		"type":      &types.AttributeValueMemberS{Value: string(e.Type)},
		"objectKey": &types.AttributeValueMemberS{Value: e.ObjectKey},
		"createdAt": &types.AttributeValueMemberS{Value: e.CreatedAt.UTC().Format(time.RFC3339)},
		"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.ExpiresAt.Unix(), 10)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(e.ExpiresAt), 10)},
	}
}

func sessionItem(e domain.Entitlement) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: sessionPK(e.SessionID)},
		"SK":    &types.AttributeValueMemberS{Value: skMeta},
		"token": &types.AttributeValueMemberS{Value: e.Token},
		"ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(e.ExpiresAt), 10)},
	}
}

func itemToEntitlement(item map[string]types.AttributeValue) (domain.Entitlement, error) {
	token, err := strAttr(item, "token")
	if err != nil {
		return domain.Entitlement{}, err
	}
	sessionID, err := strAttr(item, "sessionId")
	if err != nil {
		return domain.Entitlement{}, err
	}
	typ, err := strAttr(item, "type")
	if err != nil {
		return domain.Entitlement{}, err
	}
	expiresAt, err := int64Attr(item, "expiresAt")
	if err != nil {
		return domain.Entitlement{}, err
	}
	objectKey, _ := strAttr(item, "objectKey") // allow empty
	var createdAt time.Time
	if raw, err := strAttr(item, "createdAt"); err == nil {
		createdAt, _ = time.Parse(time.RFC3339, raw)
	}

	return domain.Entitlement{
		Token:     token,
		SessionID: sessionID,
		Type:      domain.PurchaseType(typ),
		ObjectKey: objectKey,
		CreatedAt: createdAt,
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
