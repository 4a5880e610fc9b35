package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/feed"
)

var loginCmd = &cobra.Command{
	Use:   "login <user-id> <name>",
	Short: "Open a session and remember its token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		avatar, _ := cmd.Flags().GetString("avatar")
		profile, err := client.Login(cmd.Context(), args[0], args[1], avatar)
		if err != nil {
			return err
		}
		if err := saveSession(client.Token(), profile.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", profile.Name, profile.ID)
		return nil
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "List the home feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listScope(cmd, feed.Home())
	},
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List bookmarked posts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listScope(cmd, feed.Favorites())
	},
}

func listScope(cmd *cobra.Command, scope feed.Scope) error {
	e, err := startEngine(cmd.Context(), scope, false)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	return printPosts(cmd.OutOrStdout(), e.Posts())
}

var showCmd = &cobra.Command{
	Use:   "show <post-id>",
	Short: "Show a post with its comment thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := startEngine(cmd.Context(), feed.Detail(args[0]), false)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		post, ok := e.State().Post(args[0])
		if !ok {
			return domain.NewNotFoundError("post", args[0])
		}
		thread, err := e.OpenThread(cmd.Context(), post.ID)
		if err != nil {
			return err
		}
		defer thread.Close()

		out := cmd.OutOrStdout()
		printPost(out, post)
		fmt.Fprintln(out)
		printTree(out, thread.Tree())
		return nil
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <post-id>",
	Short: "Toggle the like on a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return togglePost(cmd, args[0], feed.MutationLike)
	},
}

var bookmarkCmd = &cobra.Command{
	Use:   "bookmark <post-id>",
	Short: "Toggle the bookmark on a post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return togglePost(cmd, args[0], feed.MutationBookmark)
	},
}

func togglePost(cmd *cobra.Command, postID string, kind feed.MutationKind) error {
	ctx := cmd.Context()
	e, err := startEngine(ctx, feed.Detail(postID), false)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	switch kind {
	case feed.MutationLike:
		err = e.ToggleLike(ctx, postID)
	default:
		err = e.ToggleBookmark(ctx, postID)
	}
	if err != nil {
		return err
	}
	post, _ := e.State().Post(postID)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: liked=%t bookmarked=%t likes=%d\n",
		post.ID, post.IsLiked, post.IsBookmarked, post.Counters.Likes)
	return nil
}

var commentCmd = &cobra.Command{
	Use:   "comment <post-id> <text>...",
	Short: "Comment on a post or reply to a comment",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		parentID, _ := cmd.Flags().GetString("reply-to")
		e, err := startEngine(ctx, feed.Detail(args[0]), false)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		c, err := e.AddComment(ctx, args[0], strings.Join(args[1:], " "), parentID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "comment %s added\n", c.ID)
		return nil
	},
}

var likeCommentCmd = &cobra.Command{
	Use:   "like-comment <post-id> <comment-id>",
	Short: "Toggle the like on a comment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := startEngine(ctx, feed.Detail(args[0]), false)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		thread, err := e.OpenThread(ctx, args[0])
		if err != nil {
			return err
		}
		defer thread.Close()
		if err := thread.ToggleCommentLike(ctx, args[1]); err != nil {
			return err
		}
		for _, c := range thread.Comments() {
			if c.ID == args[1] {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: liked=%t likes=%d\n", c.ID, c.IsLiked, c.Likes)
			}
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Filter the home feed by title, prompt, category or tag",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := startEngine(cmd.Context(), feed.Home(), false)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()
		return printPosts(cmd.OutOrStdout(), e.Search(strings.Join(args, " ")))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the feed live until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope := feed.Home()
		if fav, _ := cmd.Flags().GetBool("favorites"); fav {
			scope = feed.Favorites()
		}
		e, err := startEngine(ctx, scope, true)
		if err != nil {
			return err
		}
		defer func() { _ = e.Close() }()

		out := cmd.OutOrStdout()
		if err := printPosts(out, e.Posts()); err != nil {
			return err
		}
		unsubscribe := e.OnChange(func(s feed.State) {
			printChange(out, s)
		})
		defer unsubscribe()

		<-ctx.Done()
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [user-id]",
	Short: "Show profile statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := session().ViewerID
		if len(args) == 1 {
			userID = args[0]
		}
		if userID == "" {
			return domain.ErrNotAuthenticated
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		stats, err := client.UserStats(cmd.Context(), userID)
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), stats)
	},
}

var postCmd = &cobra.Command{
	Use:   "post <prompt>...",
	Short: "Publish a new prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		title, _ := flags.GetString("title")
		category, _ := flags.GetString("category")
		source, _ := flags.GetString("ai-source")
		tags, _ := flags.GetStringSlice("tag")
		images, _ := flags.GetStringSlice("image")

		client, err := newClient()
		if err != nil {
			return err
		}
		rec, err := client.CreatePost(cmd.Context(), domain.NewPost{
			Title:    title,
			Prompt:   strings.Join(args, " "),
			Images:   images,
			Category: category,
			Tags:     tags,
			AISource: source,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "post %s published\n", rec.ID)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("avatar", "", "Avatar URL")
	commentCmd.Flags().String("reply-to", "", "Parent comment id")
	watchCmd.Flags().Bool("favorites", false, "Watch bookmarked posts instead of the home feed")

	postCmd.Flags().String("title", "", "Post title")
	postCmd.Flags().String("category", "", "Category")
	postCmd.Flags().String("ai-source", string(domain.DefaultAISource), "Model that generated the prompt")
	postCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	postCmd.Flags().StringSlice("image", nil, "Image URL (repeatable)")
}
