package backend

// Operation names sent with each document.
const (
	OpGetPublicChannels = "GetPublicChannels"
	OpLogin             = "Login"
	OpUpdateUser        = "UpdateUser"
	OpNewChannels       = "newChannels"
	OpCreateChannel     = "CreateChannel"
)

const updateUserMutation = `
mutation UpdateUser($user: UpdateUserInput!) {
  updateUser(input: $user) {
    changedUser {
      id
      username
      picture
    }
  }
}
`

const loginMutation = `
mutation Login($credential: LoginUserWithAuth0LockInput!) {
  loginUserWithAuth0Lock(input: $credential) {
    user {
      id
      username
    }
    token
  }
}
`

const publicChannelsQuery = `
query GetPublicChannels($wherePublic: ChannelWhereArgs, $orderBy: [ChannelOrderByArgs]) {
  viewer {
    allChannels(where: $wherePublic, orderBy: $orderBy) {
      edges {
        node {
          id
          name
          isPublic
        }
      }
    }
  }
}
`

const newChannelsSubscription = `
subscription newChannels($subscriptionFilter: ChannelSubscriptionFilter) {
  subscribeToChannel(mutations: [createChannel], filter: $subscriptionFilter) {
    value {
      id
      name
      createdAt
    }
  }
}
`

const createChannelMutation = `
mutation CreateChannel($channel: CreateChannelInput!) {
  createChannel(input: $channel) {
    changedChannel {
      id
      name
      isPublic
      createdAt
    }
  }
}
`
