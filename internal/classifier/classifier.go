// Package classifier decides whether a change event concerns the session user
// and, if so, what notification it becomes.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
	"bizgrow/internal/changefeed"
	"bizgrow/internal/model"
	"bizgrow/pkg/metrics"
	"bizgrow/pkg/otel"
)

const DefaultCurrencySymbol = "₹"

// 通知标签，同标签的系统通知会互相替换
const (
	TagLike    = "community-like"
	TagPost    = "community-post"
	TagPayment = "payment"
)

// PostLookup 按 id 查询帖子的标题和作者
type PostLookup interface {
	GetPost(ctx context.Context, postID string) (*dbcontracts.CommunityPost, error)
}

type Classifier struct {
	posts    PostLookup
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

func New(posts PostLookup, currencySymbol string, logger *zap.Logger) *Classifier {
	if currencySymbol == "" {
		currencySymbol = DefaultCurrencySymbol
	}
	return &Classifier{
		posts:    posts,
		currency: currencySymbol,
		logger:   logger,
		now:      time.Now,
	}
}

// Classify 返回 nil 表示该事件与当前用户无关，或者无法判断。不会返回错误。
func (c *Classifier) Classify(ctx context.Context, ev changefeed.Event, userID string) *model.Message {
	ctx, span := otel.StartSpan(ctx, "classifier.Classify")
	defer span.End()

	var (
		msg *model.Message
		err error
	)
	switch ev.Table {
	case changefeed.TableLikes:
		msg, err = c.classifyLike(ctx, ev, userID)
	case changefeed.TablePosts:
		msg, err = c.classifyPost(ev, userID)
	case changefeed.TableTransactions:
		msg, err = c.classifyTransaction(ev, userID)
	default:
		return nil
	}

	switch {
	case err != nil:
		return nil
	case msg == nil:
		metrics.IncClassification(ev.Table, "drop")
		return nil
	default:
		metrics.IncClassification(ev.Table, "notify")
		return msg
	}
}

func (c *Classifier) classifyLike(ctx context.Context, ev changefeed.Event, userID string) (*model.Message, error) {
	var like dbcontracts.CommunityLike
	if err := c.decode(changefeed.TableLikes, ev.NewRow, &like); err != nil {
		return nil, err
	}
	if like.PostID == "" {
		return nil, c.malformed(changefeed.TableLikes, "missing post_id")
	}

	post, err := c.posts.GetPost(ctx, like.PostID)
	if err != nil {
		// 帖子可能已被并发删除
		c.logger.Debug("Post lookup failed, dropping like event",
			zap.String("post_id", like.PostID),
			zap.Error(err),
		)
		metrics.IncClassification(changefeed.TableLikes, "lookup_failed")
		return nil, err
	}
	if post.UserID != userID {
		return nil, nil
	}

	return c.message(ev, userID, "New Like!",
		fmt.Sprintf(`Someone liked your post: "%s"`, post.Title),
		TagLike, "/community"), nil
}

func (c *Classifier) classifyPost(ev changefeed.Event, userID string) (*model.Message, error) {
	var post dbcontracts.CommunityPost
	if err := c.decode(changefeed.TablePosts, ev.NewRow, &post); err != nil {
		return nil, err
	}
	if post.UserID == "" {
		return nil, c.malformed(changefeed.TablePosts, "missing user_id")
	}
	if post.UserID == userID {
		return nil, nil
	}

	return c.message(ev, userID, "New Community Post",
		fmt.Sprintf(`New post: "%s"`, post.Title),
		TagPost, "/community"), nil
}

func (c *Classifier) classifyTransaction(ev changefeed.Event, userID string) (*model.Message, error) {
	var tx dbcontracts.Transaction
	if err := c.decode(changefeed.TableTransactions, ev.NewRow, &tx); err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, nil
	}

	return c.message(ev, userID, "Payment Confirmed!",
		fmt.Sprintf("Transaction of %s completed successfully", c.FormatAmount(tx.Amount)),
		TagPayment, "/transactions"), nil
}

// FormatAmount 最短十进制表示：299 -> ₹299，299.5 -> ₹299.5
func (c *Classifier) FormatAmount(amount float64) string {
	return c.currency + strconv.FormatFloat(amount, 'f', -1, 64)
}

func (c *Classifier) decode(table string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return c.malformed(table, err.Error())
	}
	return nil
}

func (c *Classifier) malformed(table, reason string) error {
	c.logger.Warn("Malformed change row", zap.String("table", table), zap.String("reason", reason))
	metrics.IncClassification(table, "malformed")
	return fmt.Errorf("malformed %s row: %s", table, reason)
}

// MessageID 同一事件对同一用户总是得到相同的 id，多个标签页/设备各自分类时
// 收件箱和推送队列可以据此去重
func MessageID(ev changefeed.Event, userID string) string {
	return uuid.NewSHA1(messageNamespace, []byte(ev.Table+"\x00"+userID+"\x00"+string(ev.NewRow))).String()
}

var messageNamespace = uuid.MustParse("6f1c3c4e-1b7a-4f55-9a8e-2d0c9f1e7b21")

func (c *Classifier) message(ev changefeed.Event, userID, title, body, tag, url string) *model.Message {
	return &model.Message{
		ID:           MessageID(ev, userID),
		Title:        title,
		Body:         body,
		Tag:          tag,
		TargetUserID: userID,
		URL:          url,
		CreatedAt:    c.now(),
	}
}
