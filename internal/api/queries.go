package api

// Fragments are the typed contract between a view and the data it reads.
// Every operation below is assembled from the fragments it spreads, and
// ValidateDocuments checks each one against schema.graphql.

const actorFieldsFragment = `
fragment ActorFields on Actor {
  avatarUrl
  login
  url
}
`

const commentFieldsFragment = `
fragment CommentFields on IssueComment {
  id
  bodyHTML
  createdAt
  author {
    ...ActorFields
  }
  issue {
    id
    number
    title
  }
}
`

const postFieldsFragment = `
fragment PostFields on Issue {
  id
  number
  title
  bodyHTML
  createdAt
  author {
    ...ActorFields
  }
  comments(first: $commentCount) {
    edges {
      cursor
      node {
        ...CommentFields
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}
`

const repositoryPostsFragment = `
fragment RepositoryPosts on Repository {
  id
  posts: issues(
    first: $count
    after: $cursor
    orderBy: {field: CREATED_AT, direction: DESC}
    filterBy: {createdBy: $createdBy}
    labels: $labels
  ) {
    edges {
      cursor
      node {
        ...PostFields
      }
    }
    pageInfo {
      hasNextPage
      endCursor
    }
  }
}
`

const postsQuery = `
query Posts_Query(
  $owner: String = "onegraph"
  $name: String = "essay.dev"
  $createdBy: String = "sgrove"
  $labels: [String!] = ["Publish"]
  $count: Int = 10
  $cursor: String
  $commentCount: Int = 10
) {
  repository(owner: $owner, name: $name) {
    ...RepositoryPosts
  }
}
` + repositoryPostsFragment + postFieldsFragment + commentFieldsFragment + actorFieldsFragment

const postsPageQuery = `
query Posts_PaginatedQuery(
  $id: ID!
  $createdBy: String = "sgrove"
  $labels: [String!] = ["Publish"]
  $count: Int = 10
  $cursor: String
  $commentCount: Int = 10
) {
  node(id: $id) {
    ... on Repository {
      ...RepositoryPosts
    }
  }
}
` + repositoryPostsFragment + postFieldsFragment + commentFieldsFragment + actorFieldsFragment

const commentsPageQuery = `
query Post_PaginatedCommentsQuery($id: ID!, $count: Int = 10, $cursor: String) {
  node(id: $id) {
    ... on Issue {
      id
      comments(first: $count, after: $cursor) {
        edges {
          cursor
          node {
            ...CommentFields
          }
        }
        pageInfo {
          hasNextPage
          endCursor
        }
      }
    }
  }
}
` + commentFieldsFragment + actorFieldsFragment

const latestCommentsQuery = `
query LatestComments($id: ID!, $count: Int = 10) {
  node(id: $id) {
    ... on Issue {
      comments(last: $count) {
        nodes {
          ...CommentFields
        }
      }
    }
  }
}
` + commentFieldsFragment + actorFieldsFragment

const recentIssuesQuery = `
query RecentIssues($owner: String!, $name: String!, $count: Int = 10) {
  repository(owner: $owner, name: $name) {
    issues(first: $count, orderBy: {field: UPDATED_AT, direction: DESC}) {
      nodes {
        id
        number
        title
      }
    }
  }
}
`

const viewerQuery = `
query Viewer {
  viewer {
    login
  }
}
`

const addCommentMutation = `
mutation AddComment($input: AddCommentInput!) {
  addComment(input: $input) {
    clientMutationId
    commentEdge {
      node {
        ...CommentFields
      }
    }
  }
}
` + commentFieldsFragment + actorFieldsFragment

const commentNotificationSubscription = `
subscription CommentNotification($repoOwner: String = "", $repoName: String = "") {
  issueCommentEvent(input: {repoOwner: $repoOwner, repoName: $repoName}) {
    comment {
      ...CommentFields
    }
  }
}
` + commentFieldsFragment + actorFieldsFragment

// documents lists every operation by name.
var documents = map[string]string{
	"Posts_Query":                 postsQuery,
	"Posts_PaginatedQuery":        postsPageQuery,
	"Post_PaginatedCommentsQuery": commentsPageQuery,
	"LatestComments":              latestCommentsQuery,
	"RecentIssues":                recentIssuesQuery,
	"Viewer":                      viewerQuery,
	"AddComment":                  addCommentMutation,
	"CommentNotification":         commentNotificationSubscription,
}
