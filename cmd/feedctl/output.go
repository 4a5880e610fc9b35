package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/feed"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printPosts(w io.Writer, posts []domain.Post) error {
	if len(posts) == 0 {
		_, err := fmt.Fprintln(w, "no posts")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tSOURCE\tLIKES\tCOMMENTS\tFLAGS")
	for _, p := range posts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			p.ID, title(p), p.Author.Name, p.AISource, p.Counters.Likes, p.Counters.Comments, flags(p))
	}
	return tw.Flush()
}

func printPost(w io.Writer, p domain.Post) {
	fmt.Fprintf(w, "%s  by %s  [%s]  %s\n", title(p), p.Author.Name, p.AISource, p.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintln(w, p.Body)
	if len(p.Tags) > 0 {
		fmt.Fprintf(w, "tags: %s\n", strings.Join(p.Tags, ", "))
	}
	fmt.Fprintf(w, "likes %d  comments %d  shares %d  %s\n",
		p.Counters.Likes, p.Counters.Comments, p.Counters.Shares, flags(p))
}

// printTree печатает комментарии с отступом по глубине.
func printTree(w io.Writer, nodes []*feed.Node) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "no comments")
		return
	}
	for _, n := range nodes {
		mark := ""
		if n.Comment.IsLiked {
			mark = " *"
		}
		fmt.Fprintf(w, "%s%s (%s): %s  [%d%s]\n",
			strings.Repeat("  ", n.Depth), n.Comment.Author.Name, n.Comment.ID, n.Comment.Content, n.Comment.Likes, mark)
		printTree(w, n.Replies)
	}
}

func printChange(w io.Writer, s feed.State) {
	switch s.Status {
	case feed.StatusFailed:
		fmt.Fprintf(w, "! %v\n", s.Err)
	case feed.StatusReady:
		for _, p := range s.Posts {
			fmt.Fprintf(w, "~ %s likes=%d comments=%d %s\n", p.ID, p.Counters.Likes, p.Counters.Comments, flags(p))
		}
	}
}

func printStats(w io.Writer, s domain.UserStats) error {
	tw := newTable(w)
	rows := []struct {
		name  string
		value int
	}{
		{"posts", s.Posts},
		{"likes received", s.LikesReceived},
		{"bookmarks received", s.BookmarksRecvd},
		{"shares received", s.SharesReceived},
		{"comments given", s.CommentsGiven},
		{"likes given", s.LikesGiven},
		{"bookmarks given", s.BookmarksGiven},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\n", r.name, r.value)
	}
	return tw.Flush()
}

func title(p domain.Post) string {
	if p.Title != "" {
		return p.Title
	}
	body := []rune(p.Body)
	if len(body) > 40 {
		return string(body[:40]) + "..."
	}
	return string(body)
}

func flags(p domain.Post) string {
	var out []string
	if p.IsLiked {
		out = append(out, "liked")
	}
	if p.IsBookmarked {
		out = append(out, "saved")
	}
	return strings.Join(out, ",")
}
